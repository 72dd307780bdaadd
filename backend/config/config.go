// Copyright (C) 2026 quietwire.dev <relay@quietwire.dev>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr        string        `mapstructure:"RELAY_ADDR"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	RedisAddr         string        `mapstructure:"REDIS_ADDR"`
	JWTSecret         string        `mapstructure:"JWT_SECRET"`
	JWTIssuer         string        `mapstructure:"JWT_ISSUER"`
	MessageRateLimit  int64         `mapstructure:"MESSAGE_RATE_LIMIT"`
	MessageRateWindow time.Duration `mapstructure:"MESSAGE_RATE_WINDOW"`
}

// Load reads configuration from the environment, with an optional app.env
// file in path as a fallback for development.
func Load(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	viper.BindEnv("RELAY_ADDR")
	viper.BindEnv("DATABASE_URL")
	viper.BindEnv("REDIS_ADDR")
	viper.BindEnv("JWT_SECRET")
	viper.BindEnv("JWT_ISSUER")
	viper.BindEnv("MESSAGE_RATE_LIMIT")
	viper.BindEnv("MESSAGE_RATE_WINDOW")

	viper.SetDefault("RELAY_ADDR", ":8080")
	viper.SetDefault("DATABASE_URL", "postgres://localhost/relay?sslmode=disable")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("JWT_ISSUER", "quietwire")
	viper.SetDefault("MESSAGE_RATE_LIMIT", 60)
	viper.SetDefault("MESSAGE_RATE_WINDOW", time.Minute)

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil // No file is fine; the environment carries everything.
	}

	err = viper.Unmarshal(&config)
	return
}
