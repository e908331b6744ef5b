package common

import (
	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/storyrelay/internal/app/config"
)

// Output formats accepted by --output
const (
	OutputText = "text"
	OutputJSON = "json"
)

var (
	// globalConfig holds the loaded configuration for all commands
	globalConfig config.Config

	// globalFs backs the setting file, the local archive and input documents
	globalFs afero.Fs = afero.NewOsFs()

	// globalHome is the directory the setting file is read from
	globalHome string

	outputFormat = OutputText
)

// SetGlobalConfig sets the global configuration
func SetGlobalConfig(cfg config.Config) {
	globalConfig = cfg
}

// GetGlobalConfig returns the global configuration
func GetGlobalConfig() config.Config {
	return globalConfig
}

// SetFs replaces the filesystem; tests use an in-memory one
func SetFs(fs afero.Fs) {
	globalFs = fs
}

// GetFs returns the filesystem commands read and write through
func GetFs() afero.Fs {
	return globalFs
}

// SetOutputFormat selects the presenter
func SetOutputFormat(format string) {
	outputFormat = format
}

// GetOutputFormat returns the presenter format
func GetOutputFormat() string {
	return outputFormat
}

// SetHome records the storyrelay home directory
func SetHome(home string) {
	globalHome = home
}

// GetHome returns the storyrelay home directory
func GetHome() string {
	return globalHome
}

// AnnotationSkipConfig marks commands that run without loading settings
const AnnotationSkipConfig = "storyrelay/skip-config"
