package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port    int         `yaml:"port"`
	Origin  string      `yaml:"origin"`
	Cache   CacheConfig `yaml:"cache"`
	Assets  []string    `yaml:"assets"`
	Offline string      `yaml:"offline"`
}

type CacheConfig struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	Provider string `yaml:"provider"`
	Path     string `yaml:"path"`
}

// The PancrePal application shell. Used when the config file does not
// list an asset set of its own.
var defaultAssets = []string{
	"/",
	"/static/css/style.css",
	"/static/offline.html",
	"/static/icons/icon-192x192.png",
	"/static/icons/icon-512x512.png",
}

const defaultOffline = "/static/offline.html"

func defaultConfig() Config {
	return Config{
		Port: 8080,
		Cache: CacheConfig{
			Name:     "pancrepal",
			Provider: "sqlite",
		},
		Assets:  defaultAssets,
		Offline: defaultOffline,
	}
}

func getConfig(filename string) (Config, error) {
	config := defaultConfig()
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}

func validate(config Config) error {
	if config.Origin == "" {
		return fmt.Errorf("origin is required")
	}
	if config.Cache.Version == "" {
		return fmt.Errorf("cache.version is required")
	}
	if config.Offline != "" && !contains(config.Assets, config.Offline) {
		return fmt.Errorf("offline document %s must be part of the asset set", config.Offline)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
