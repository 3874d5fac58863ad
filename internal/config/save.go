package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// WriteDefaultConfig writes a commented default config file at configPath.
// Parent directories are created; the write is atomic (temp file + rename).
func WriteDefaultConfig(configPath string) error {
	doc := defaultConfigNode()

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".transom.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(buf.Bytes()); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

// defaultConfigNode builds the commented default document.
func defaultConfigNode() *yaml.Node {
	d := Defaults()

	root := &yaml.Node{Kind: yaml.MappingNode}

	appendEntry(root, "listen_addr", scalar(d.ListenAddr),
		"Address the RPC surface listens on")
	appendEntry(root, "schema_dir", scalar(d.SchemaDir),
		"Base directory relative schema paths resolve against")
	appendEntry(root, "watch_schemas", scalar(strconv.FormatBool(d.WatchSchemas)),
		"Re-read edited schema files on the next registration")
	appendEntry(root, "log_file", scalar(d.LogFile),
		"Debug log destination (empty logs to stderr)")
	appendEntry(root, "debug", scalar(strconv.FormatBool(d.Debug)), "")

	sandbox := &yaml.Node{Kind: yaml.MappingNode}
	appendEntry(sandbox, "timeout_ms", scalar(strconv.Itoa(d.Sandbox.TimeoutMs)),
		"Wall-clock budget per transform script execution")
	appendEntry(root, "sandbox", sandbox, "")

	provider := &yaml.Node{Kind: yaml.MappingNode}
	appendEntry(provider, "timeout_ms", scalar(strconv.Itoa(d.Provider.TimeoutMs)),
		"Per-call budget for invoking a provider endpoint")
	appendEntry(root, "provider", provider, "")

	tr := &yaml.Node{Kind: yaml.MappingNode}
	appendEntry(tr, "enabled", scalar(strconv.FormatBool(d.Tracing.Enabled)), "")
	appendEntry(tr, "exporter", scalar(d.Tracing.Exporter),
		`Export backend: "none", "file", "stdout", "otlp"`)
	appendEntry(tr, "otlp_endpoint", scalar(d.Tracing.OTLPEndpoint), "")
	appendEntry(tr, "sample_rate", scalar(strconv.FormatFloat(d.Tracing.SampleRate, 'f', 1, 64)), "")
	appendEntry(root, "tracing", tr, "")

	return &yaml.Node{
		Kind:    yaml.DocumentNode,
		Content: []*yaml.Node{root},
	}
}

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: value}
}

func appendEntry(mapping *yaml.Node, key string, value *yaml.Node, comment string) {
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: key, HeadComment: comment}
	mapping.Content = append(mapping.Content, keyNode, value)
}
