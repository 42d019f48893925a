package buildspec

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ubuntu/decorate"
)

// ErrDescriptorSyntax is returned when the deployment descriptor is not valid JSON.
var ErrDescriptorSyntax = errors.New("descriptor is not valid JSON")

// QtDeploy holds the fields read from an androiddeployqt input descriptor.
type QtDeploy struct {
	Qt                string   `json:"qt"`
	SDK               string   `json:"sdk"`
	NDK               string   `json:"ndk"`
	SDKBuildTools     string   `json:"sdk-build-tools"`
	ApplicationBinary string   `json:"application-binary"`
	Architectures     []string `json:"architectures"`
	MinSDKVersion     int      `json:"android-min-sdk-version"`
	TargetSDKVersion  int      `json:"android-target-sdk-version"`

	// Path is the location the descriptor was loaded from.
	Path string `json:"-"`
}

// LoadQtDeploy reads the androiddeployqt descriptor at path.
//
// Syntax errors are reported as ErrDescriptorSyntax so that callers can fail
// the run before any Android tooling is provisioned.
func LoadQtDeploy(path string) (q QtDeploy, err error) {
	defer decorate.OnError(&err, "could not load %s", path)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return QtDeploy{}, ErrSpecNotFound
	}
	if err != nil {
		return QtDeploy{}, err
	}

	if !json.Valid(data) {
		return QtDeploy{}, ErrDescriptorSyntax
	}

	if err := json.Unmarshal(data, &q); err != nil {
		return QtDeploy{}, err
	}
	q.Path = path
	return q, nil
}

// Validate checks that the descriptor carries the fields androiddeployqt
// cannot run without, reporting all missing fields at once.
//
// Toolchain locations (qt, sdk, ndk) are not required here: the pipeline
// resolves and patches them in before invoking the deployment tool.
func (q QtDeploy) Validate() error {
	var errs error

	if q.ApplicationBinary == "" {
		errs = errors.Join(errs, errors.New("missing required key application-binary"))
	}
	if len(q.Architectures) == 0 {
		errs = errors.Join(errs, errors.New("missing required key architectures"))
	}
	for _, arch := range q.Architectures {
		if !validArchitectures[arch] {
			errs = errors.Join(errs, fmt.Errorf("unknown architecture %q", arch))
		}
	}

	if errs != nil {
		return fmt.Errorf("invalid deployment descriptor %s: %w", q.Path, errs)
	}
	return nil
}

var validArchitectures = map[string]bool{
	"arm64-v8a":   true,
	"armeabi-v7a": true,
	"x86":         true,
	"x86_64":      true,
}

// ToolchainPaths are the resolved tool locations patched into a descriptor
// before androiddeployqt runs.
type ToolchainPaths struct {
	Qt            string
	SDK           string
	NDK           string
	SDKBuildTools string
}

// PatchDescriptor returns a copy of the descriptor data with the toolchain
// locations updated, preserving every other field as authored.
func PatchDescriptor(data []byte, paths ToolchainPaths) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("could not patch descriptor: %w", err)
	}

	set := func(key, value string) {
		if value != "" {
			doc[key] = value
		}
	}
	set("qt", paths.Qt)
	set("sdk", paths.SDK)
	set("ndk", paths.NDK)
	set("sdk-build-tools", paths.SDKBuildTools)

	patched, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("could not patch descriptor: %w", err)
	}
	return patched, nil
}
