package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量前缀
const DefaultEnvPrefix = "GENFLOW"

// Loader 按 默认值 → YAML 文件 → 环境变量 的顺序叠加配置。
//
//	cfg, err := config.NewLoader().WithConfigPath("config.yaml").Load()
type Loader struct {
	configPath string
	envPrefix  string
	getenv     func(string) string
	validators []func(*Config) error
}

func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix, getenv: os.Getenv}
}

// WithConfigPath 文件不存在时只使用默认值与环境变量
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithEnv 替换环境变量来源，测试用
func (l *Loader) WithEnv(getenv func(string) string) *Loader {
	l.getenv = getenv
	return l
}

// WithValidator 在所有来源叠加完成后执行
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := decodeFile(l.configPath, cfg); err != nil {
			return nil, fmt.Errorf("config file %s: %w", l.configPath, err)
		}
	}
	if err := l.applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

// decodeFile 严格解析：未知键视为错误，拼错的键不会被静默忽略
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv 收集 PREFIX_SECTION_FIELD 形式的变量为嵌套 map，再经 mapstructure
// 解码到 cfg 上。只覆盖出现的键；空值等同未设置。
func (l *Loader) applyEnv(cfg *Config) error {
	overlay := collectEnv(reflect.TypeOf(*cfg), l.envPrefix, l.getenv)
	if len(overlay) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	return dec.Decode(overlay)
}

func collectEnv(t reflect.Type, prefix string, getenv func(string) string) map[string]any {
	out := make(map[string]any)
	for i := range t.NumField() {
		f := t.Field(i)
		key, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if key == "" || key == "-" {
			continue
		}
		name := prefix + "_" + strings.ToUpper(key)

		if f.Type.Kind() == reflect.Struct {
			if nested := collectEnv(f.Type, name, getenv); len(nested) > 0 {
				out[key] = nested
			}
			continue
		}
		raw := strings.TrimSpace(getenv(name))
		if raw == "" {
			continue
		}
		if f.Type.Kind() == reflect.Slice && f.Type.Elem().Kind() == reflect.String {
			out[key] = splitList(raw)
			continue
		}
		out[key] = raw
	}
	return out
}

// splitList 逗号分隔，去掉空白与空项
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MustLoad 失败时 panic，只用于示例与测试
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
