// Copyright 2025.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the application logger: JSON-encoded, written to a rotated
// file under the user's config directory. envPrefix selects the _DEBUG
// environment variable that raises the level.
func New(envPrefix string) (*zap.SugaredLogger, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	logFile := filepath.Join(home, ".sshbridge", "logs", "sshbridge.log")
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, err
	}

	writer := &lumberjack.Logger{
		Filename:   logFile,
		LocalTime:  true,
		MaxBackups: 10,
		MaxSize:    10,
	}

	level := zapcore.InfoLevel
	if isTruthy(os.Getenv(envPrefix + "_DEBUG")) {
		level = zapcore.DebugLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(writer),
		level,
	)
	return zap.New(core, zap.AddCaller()).Sugar(), nil
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
