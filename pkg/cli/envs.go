package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// parseEnvironments splits a comma-separated --envs value and appends the
// IDs listed in envsFile (one per line, # starts a comment). Order is kept
// and duplicates are passed through for the scheduler to reject.
func parseEnvironments(list, envsFile string) ([]string, error) {
	var ids []string
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	if envsFile != "" {
		fromFile, err := readEnvsFile(envsFile)
		if err != nil {
			return nil, err
		}
		ids = append(ids, fromFile...)
	}
	return ids, nil
}

func readEnvsFile(path string) ([]string, error) {
	f, err := os.Open(path) //#nosec G304 -- user-provided environment list
	if err != nil {
		return nil, fmt.Errorf("failed to read envs file: %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		for _, id := range strings.Split(line, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read envs file: %w", err)
	}
	return ids, nil
}

func parseEnvVars(envs []string) map[string]string {
	result := make(map[string]string)
	for _, e := range envs {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		}
	}
	return result
}

// mergeVariables layers variable maps; later maps win.
func mergeVariables(layers ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}
