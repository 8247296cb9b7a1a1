package config

import "gopkg.in/yaml.v2"

func decodeYAML(content string) (fileConfig, error) {
	var payload fileConfig
	if err := yaml.UnmarshalStrict([]byte(content), &payload); err != nil {
		return fileConfig{}, formatError("yaml", err)
	}
	return payload, nil
}
