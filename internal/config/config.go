package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config はアプリケーション全体の設定を表す構造体
type Config struct {
	Queue     QueueConfig     `toml:"queue"`
	Capture   CaptureConfig   `toml:"capture"`
	Forwarder ForwarderConfig `toml:"forwarder"`
	API       APIConfig       `toml:"api"`
}

// QueueConfig はイベントキューの設定
type QueueConfig struct {
	Capacity int `toml:"capacity"`
}

// CaptureConfig は物理デバイスからの読み取り設定
type CaptureConfig struct {
	GrabDevices      bool   `toml:"grab_devices"`       // デバイスを専有するか
	PreferredPointer string `toml:"preferred_pointer"`  // 優先するポインターデバイス名
	PreferredKbd     string `toml:"preferred_keyboard"` // 優先するキーボードデバイス名
}

// ForwarderConfig は仮想デバイスへの転送設定
type ForwarderConfig struct {
	Enabled    bool   `toml:"enabled"`
	UinputPath string `toml:"uinput_path"`
	NamePrefix string `toml:"name_prefix"`
	MinX       int32  `toml:"min_x"`
	MaxX       int32  `toml:"max_x"`
	MinY       int32  `toml:"min_y"`
	MaxY       int32  `toml:"max_y"`
}

// APIConfig はAPIサーバーの設定
type APIConfig struct {
	Port int `toml:"port"`
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() *Config {
	return &Config{
		Queue: QueueConfig{
			Capacity: 256,
		},
		Capture: CaptureConfig{
			GrabDevices: false,
		},
		Forwarder: ForwarderConfig{
			Enabled:    true,
			UinputPath: "/dev/uinput",
			NamePrefix: "input-bridge",
			MinX:       0,
			MaxX:       32767,
			MinY:       0,
			MaxY:       32767,
		},
		API: APIConfig{
			Port: 8080,
		},
	}
}

// GetDefaultConfigDir はデフォルトの設定ディレクトリを返す
func GetDefaultConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "input-bridge"), nil
}

// LoadConfig は設定ファイルから設定を読み込む
func LoadConfig(configPath string) (*Config, error) {
	// デフォルト設定を用意
	config := DefaultConfig()

	// ファイルが存在しない場合はデフォルト設定を保存して返す
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveConfig(configPath, config); err != nil {
			return config, err
		}
		return config, nil
	}

	// 設定ファイルの読み込み
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return config, err
	}

	return config, nil
}

// SaveConfig は設定をTOMLファイルに保存する
func SaveConfig(configPath string, config *Config) error {
	// 設定ディレクトリの作成
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	// ファイルを開く（なければ作成）
	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	// TOML形式でエンコードして書き込み
	encoder := toml.NewEncoder(f)
	return encoder.Encode(config)
}
