package feature

import (
	"fmt"
	"os"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"
)

// Parse reads a YAML list of rules and compiles each one with an environment
// obtained from envProvider:
//
//   - feature: on_time_start
//     expr: start_delay_min <= 5
//
// Feature names must be unique.
func Parse(content []byte, envProvider func() (*cel.Env, error)) ([]Rule, error) {
	rules := []Rule{}
	if err := yaml.Unmarshal(content, &rules); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(rules))
	for i := range rules {
		if _, found := seen[rules[i].Feature]; found {
			return nil, fmt.Errorf("feature %s: defined more than once", rules[i].Feature)
		}
		seen[rules[i].Feature] = struct{}{}

		env, err := envProvider()
		if err != nil {
			return nil, err
		}

		if err := rules[i].Init(env); err != nil {
			return nil, err
		}
	}

	return rules, nil
}

// LoadFromFile reads and compiles the rules stored in file.
func LoadFromFile(file string, envProvider func() (*cel.Env, error)) ([]Rule, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return Parse(content, envProvider)
}
