package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	prefix = "CAMSETUP"

	videoNr         = "VIDEO_NR"
	cardLabel       = "CARD_LABEL"
	moduleRepo      = "MODULE_REPO"
	buildDir        = "BUILD_DIR"
	packages        = "PACKAGES"
	hostID          = "HOST_ID"
	deviceTimeout   = "DEVICE_TIMEOUT"
	nodeTimeout     = "NODE_TIMEOUT"
	runTimeout      = "RUN_TIMEOUT"
	captureDuration = "CAPTURE_DURATION"

	defaultVideoNr         = 10
	defaultCardLabel       = "OBS_Virtual_Cam"
	defaultModuleRepo      = "https://github.com/umlaeute/v4l2loopback.git"
	defaultBuildDir        = "/tmp/v4l2loopback"
	defaultDeviceTimeout   = 20 * time.Second
	defaultNodeTimeout     = 10 * time.Second
	defaultRunTimeout      = time.Hour
	defaultCaptureDuration = 5 * time.Second
)

// defaultPackages is the set of Fedora packages required for the multicam
// stack. kernel-devel is pinned to the running kernel at install time.
var defaultPackages = []string{
	"obs-studio",
	"pipewire",
	"pipewire-v4l2",
	"v4l2loopback-utils",
	"kmod-v4l2loopback",
	"wireplumber",
	"xdg-desktop-portal",
	"xdg-desktop-portal-gtk",
	"ffmpeg",
	"git",
	"make",
	"gcc",
	"kernel-devel",
	"v4l2-utils",
	"gstreamer1-plugins-good",
	"pipewire-utils",
}

var v *viper.Viper

func InitConfiguration(cmd *cobra.Command, configFile string) error {
	v = viper.New()

	v.SetEnvPrefix(prefix)
	v.AutomaticEnv() // read in environment variables that match

	if len(configFile) > 0 {
		zap.S().Infof("using config file: %v", configFile)
		v.SetConfigFile(configFile)

		err := v.ReadInConfig()
		if err != nil {
			zap.S().Errorw("error", err, "config file", configFile)
			return fmt.Errorf("fail to read config file")
		}
	}

	// Bind the current command's flags to viper
	bindFlags(cmd, v)

	return nil
}

// Bind each cobra flag to its associated viper configuration (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// replace - with _ to match yaml format
		flagName := f.Name
		if strings.Contains(f.Name, "-") {
			// Environment variables can't have dashes in them, so bind them to their equivalent
			// keys with underscores.
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			v.BindEnv(f.Name, fmt.Sprintf("%s_%s", prefix, envVarSuffix))
			flagName = strings.ReplaceAll(f.Name, "-", "_")
		}

		// Apply the viper config value to the flag when the flag is not set and viper has a value
		// and the other way around.
		if !f.Changed && v.IsSet(flagName) {
			val := v.Get(flagName)
			cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val))
		} else if f.Changed && !v.IsSet(flagName) {
			v.Set(flagName, f.Value)
		}
	})
}

func GetVirtualVideoNr() int {
	if !v.IsSet(videoNr) {
		return defaultVideoNr
	}

	// flag values arrive as pflag.Value; go through the string form so an
	// explicit 0 is honored
	if n, err := strconv.Atoi(strings.TrimSpace(v.GetString(videoNr))); err == nil && n >= 0 {
		return n
	}

	return defaultVideoNr
}

func GetVirtualDevicePath() string {
	return fmt.Sprintf("/dev/video%d", GetVirtualVideoNr())
}

func GetCardLabel() string {
	if !v.IsSet(cardLabel) {
		return defaultCardLabel
	}

	return v.GetString(cardLabel)
}

func GetModuleRepo() string {
	if !v.IsSet(moduleRepo) {
		return defaultModuleRepo
	}

	return v.GetString(moduleRepo)
}

func GetModuleBuildDir() string {
	if !v.IsSet(buildDir) {
		return defaultBuildDir
	}

	return v.GetString(buildDir)
}

func GetSystemPackages() []string {
	if !v.IsSet(packages) {
		return defaultPackages
	}

	return v.GetStringSlice(packages)
}

func GetHostID() string {
	if !v.IsSet(hostID) {
		id, err := machineid.ID()
		if err != nil {
			id = uuid.New().String()
		}

		// save id for the next call
		v.Set(hostID, id)

		return id
	}

	return v.GetString(hostID)
}

func GetDeviceWaitTimeout() time.Duration {
	if !v.IsSet(deviceTimeout) {
		return defaultDeviceTimeout
	}

	return v.GetDuration(deviceTimeout)
}

func GetNodeWaitTimeout() time.Duration {
	if !v.IsSet(nodeTimeout) {
		return defaultNodeTimeout
	}

	return v.GetDuration(nodeTimeout)
}

// GetRunTimeout bounds one full provisioning run; the dnf and module build
// steps can legitimately take a long time.
func GetRunTimeout() time.Duration {
	if !v.IsSet(runTimeout) {
		return defaultRunTimeout
	}

	return v.GetDuration(runTimeout)
}

func GetCaptureDuration() time.Duration {
	if !v.IsSet(captureDuration) {
		return defaultCaptureDuration
	}

	return v.GetDuration(captureDuration)
}
