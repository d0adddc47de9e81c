package document

import "gopkg.in/yaml.v3"

func decodeYAML(data []byte, out any) error {
	return yaml.Unmarshal(data, out)
}

func encodeYAML(v any) ([]byte, error) {
	return yaml.Marshal(v)
}
