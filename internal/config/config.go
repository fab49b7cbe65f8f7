package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/SiliconJelly/DubAI/internal/templates"
	"github.com/SiliconJelly/DubAI/internal/utils/pathutil"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const dubaiPrefix = "DUBAI"

type Config struct {
	DubaiHome   string `mapstructure:"dubai_home"`
	Environment string `mapstructure:"environment"`

	// Backend selects the inference engine: "sherpa" or "mock".
	Backend string `mapstructure:"backend"`

	// Language is the target dubbing language code (e.g. "bn"). It drives
	// the language view of the model catalog and the synthesis default.
	Language string `mapstructure:"language"`

	UseGPU       bool `mapstructure:"use_gpu"`
	NumThreads   int  `mapstructure:"num_threads"`
	CatalogLimit int  `mapstructure:"catalog_limit"`

	ModelsDir string `mapstructure:"models_dir"`
	TempDir   string `mapstructure:"temp_dir"`

	WarmupModels       []string `mapstructure:"warmup_models"`
	MaxDownloadWorkers int      `mapstructure:"max_download_workers"`

	Registry *RegistryConfig `mapstructure:"registry"`

	// Models are extra catalog entries from config.yaml, keyed by registry
	// identifier. They are merged over the built-in catalog.
	Models map[string]ModelEntry `mapstructure:"models"`
}

type RegistryConfig struct {
	CacheDir string `mapstructure:"cache_dir"`
	HFToken  string `mapstructure:"hf_token"`
}

type ModelEntry struct {
	Source   string   `mapstructure:"source"`
	Language string   `mapstructure:"language"`
	Files    []string `mapstructure:"files"`
	Blake3   string   `mapstructure:"blake3"`
}

var config *Config

// InitConfig resolves the dubai home directory, writes the first-run
// config.yaml and .env templates, loads env files, and reads the config
// into the package singleton.
func InitConfig() error {
	dubaiHome, err := getDubaiHome()
	if err != nil {
		return err
	}

	modelsDir, err := getModelsDir(dubaiHome)
	if err != nil {
		return err
	}

	tempDir, err := getTempDir(dubaiHome)
	if err != nil {
		return err
	}

	viper.Set("dubai_home", dubaiHome)
	viper.Set("models_dir", modelsDir)
	viper.Set("temp_dir", tempDir)

	if err := createDubaiHomeDirs(dubaiHome); err != nil {
		return err
	}

	envFile := viper.GetString("env_file")
	if envFile == "" {
		envFile = filepath.Join(dubaiHome, ".env")
	}

	configFile := viper.GetString("config_file")
	if configFile == "" {
		configFile = filepath.Join(dubaiHome, "config.yaml")
	}

	if _, err := os.Stat(envFile); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat .env file: %w", err)
		}

		if err := templates.WriteEnv(envFile); err != nil {
			return fmt.Errorf("failed to create .env file: %w", err)
		}
	}

	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	if _, err := os.Stat(configFile); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config.yaml file: %w", err)
		}

		if err := templates.WriteConfig(configFile); err != nil {
			return fmt.Errorf("failed to create config.yaml file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(dubaiPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))
	viper.SetConfigFile(configFile)

	setDefaults()

	if err := LoadConfig(false); err != nil {
		if errors.As(err, &viper.ConfigFileNotFoundError{}) {
			// Goes to stderr: stdout is the protocol stream.
			fmt.Fprintln(os.Stderr, "No config file found. Using default config.")
		} else {
			return err
		}
	}

	return nil
}

func LoadConfig(reload bool) error {
	if config != nil && !reload {
		return fmt.Errorf("config already loaded")
	}

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config: %w", err)
	}

	config = &Config{}
	err := viper.Unmarshal(config)
	if err != nil {
		return fmt.Errorf("error unmarshalling config: %w", err)
	}

	return nil
}

func IsLoaded() bool {
	return config != nil
}

func GetConfig() *Config {
	if config == nil {
		panic("config not loaded")
	}

	return config
}

func setDefaults() {
	viper.SetDefault("environment", DefaultEnvironment)
	viper.SetDefault("backend", DefaultBackend)
	viper.SetDefault("language", DefaultLanguage)
	viper.SetDefault("use_gpu", true)
	viper.SetDefault("num_threads", DefaultNumThreads)
	viper.SetDefault("catalog_limit", DefaultCatalogLimit)
	viper.SetDefault("max_download_workers", DefaultMaxDownloadWorkers)
}

// Returns the dubai home directory path.
// It attempts to retrieve the home directory from the following sources in order:
// 1. The `dubai_home` flag from viper.
// 2. The `DUBAI_HOME` environment variable.
// 3. The default dubai home directory.
func getDubaiHome() (string, error) {
	dubaiHome := viper.GetString("dubai_home")
	if dubaiHome == "" {
		dubaiHome = os.Getenv("DUBAI_HOME")
		if dubaiHome == "" {
			dubaiHome = DefaultDubaiHome
		}
	}

	dubaiHome, err := pathutil.ExpandPath(dubaiHome)
	if err != nil {
		return "", fmt.Errorf("failed to expand dubai home path: %w", err)
	}

	return dubaiHome, nil
}

func getModelsDir(dubaiHome string) (string, error) {
	if dubaiHome == "" {
		return "", ErrDubaiHomeNotSet
	}

	modelsDir := viper.GetString("models_dir")
	if modelsDir == "" {
		modelsDir = filepath.Join(dubaiHome, "models")
	}

	modelsDir, err := pathutil.ExpandPath(modelsDir)
	if err != nil {
		return "", ErrDubaiHomeExpandFailed
	}

	return modelsDir, nil
}

func getTempDir(dubaiHome string) (string, error) {
	if dubaiHome == "" {
		return "", ErrDubaiHomeNotSet
	}

	tempDir := viper.GetString("temp_dir")
	if tempDir == "" {
		tempDir = filepath.Join(dubaiHome, "temp")
	}

	tempDir, err := pathutil.ExpandPath(tempDir)
	if err != nil {
		return "", ErrDubaiHomeExpandFailed
	}

	return tempDir, nil
}

func createDubaiHomeDirs(dubaiHome string) error {
	subdirs := []string{"models", "temp"}
	if err := pathutil.EnsureDir(dubaiHome); err != nil {
		return fmt.Errorf("failed to create dubai home directory: %w", err)
	}

	for _, subdir := range subdirs {
		if err := pathutil.EnsureDir(filepath.Join(dubaiHome, subdir)); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", subdir, err)
		}
	}

	return nil
}
