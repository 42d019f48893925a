// Package constants is responsible for defining the constants used in the application.
// It also provides utility functions to get the default configuration and cache paths.
package constants

import (
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// CmdName is the name of the command line tool.
	CmdName = "droidforge"

	// WebServiceCmdName is the name of the artifact receiver service executable.
	WebServiceCmdName = "droidforge-web-service"

	// IngestServiceCmdName is the name of the ingest service executable.
	IngestServiceCmdName = "droidforge-ingest-service"

	// DefaultAppFolder is the name of the default root folder.
	DefaultAppFolder = "droidforge"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelInfo

	// PipelineBuildozer is the name of the Buildozer packaging pipeline.
	PipelineBuildozer = "buildozer"

	// PipelineQtDeploy is the name of the Qt for Python packaging pipeline.
	PipelineQtDeploy = "qtdeploy"

	// BuildozerSpecFile is the base name of the Buildozer project descriptor.
	BuildozerSpecFile = "buildozer.spec"

	// QtDeployDescriptorFile is the base name of the androiddeployqt input descriptor.
	QtDeployDescriptorFile = "qt_for_python_android_deploy.json"

	// ToolchainsFileName is the base name of the toolchain pin override file.
	ToolchainsFileName = "toolchains.toml"

	// ReportExtension is the default extension for the build report files.
	ReportExtension = ".json"

	// DefaultServerURL is the default base URL collected runs are uploaded to.
	DefaultServerURL = "http://localhost:8080"

	// DefaultMinAge is the default value (in seconds) for the uploader's min-age.
	DefaultMinAge = 600

	// ArtifactExtension is the extension of the packaged Android artifacts.
	ArtifactExtension = ".apk"

	// DefaultServiceReportsFolder is the name of the default root folder for report storage on servers.
	DefaultServiceReportsFolder = "reports"

	// DefaultServiceArtifactsFolder is the name of the default root folder for artifact storage on servers.
	DefaultServiceArtifactsFolder = "artifacts"

	// DefaultServiceDataDir is the path to the default root directory for service storage on servers.
	DefaultServiceDataDir = "/var/lib/droidforge-service"

	// DefaultServiceReportsDir is the path to the default root directory for report storage on servers.
	DefaultServiceReportsDir = DefaultServiceDataDir + "/" + DefaultServiceReportsFolder

	// DefaultServiceArtifactsDir is the path to the default root directory for artifact storage on servers.
	DefaultServiceArtifactsDir = DefaultServiceDataDir + "/" + DefaultServiceArtifactsFolder
)

// Pipelines lists the known pipeline names in a stable order.
var Pipelines = []string{PipelineBuildozer, PipelineQtDeploy}

// Version is the version of the application.
var Version = "Dev"

type options struct {
	baseDir func() (string, error)
}

type option func(*options)

// GetDefaultConfigPath is the default path to the configuration file.
func GetDefaultConfigPath(opts ...option) string {
	o := options{baseDir: os.UserConfigDir}
	for _, opt := range opts {
		opt(&o)
	}

	return filepath.Join(getBaseDir(o.baseDir), DefaultAppFolder)
}

// GetDefaultCachePath is the default path to the cache directory.
func GetDefaultCachePath(opts ...option) string {
	o := options{baseDir: os.UserCacheDir}
	for _, opt := range opts {
		opt(&o)
	}

	return filepath.Join(getBaseDir(o.baseDir), DefaultAppFolder)
}

// getBaseDir is a helper function to handle the case where the baseDir function returns an error, and instead return an empty string.
func getBaseDir(baseDirFunc func() (string, error)) string {
	dir, err := baseDirFunc()
	if err != nil {
		return ""
	}
	return dir
}
