// Package serialization provides the DataRepresentationService used to turn
// collector snapshots and other values into bytes, in JSON or YAML.
package serialization

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/exception"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

const moduleName = "serialization"

// Supported formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Codec converts values to and from bytes.
type Codec struct {
	Name      string
	Marshal   func(v interface{}) ([]byte, error)
	Unmarshal func(data []byte, out interface{}) error
}

var codecs = map[string]Codec{
	FormatJSON: {Name: FormatJSON, Marshal: json.Marshal, Unmarshal: json.Unmarshal},
	FormatYAML: {Name: FormatYAML, Marshal: yaml.Marshal, Unmarshal: yaml.Unmarshal},
}

// Service is a port.DataRepresentationService whose format is chosen by
// batchcore.data-representation.format.
type Service struct {
	codec Codec
}

// NewService creates a Service using format, or the configured format when
// format is empty.
func NewService(format string) *Service {
	s := &Service{}
	if c, ok := codecs[strings.ToLower(format)]; ok {
		s.codec = c
	}
	return s
}

// Init implements port.BatchService.
func (s *Service) Init(props config.Properties) error {
	if s.codec.Marshal != nil {
		return nil
	}
	settings, err := config.BindSettings(props)
	if err != nil {
		return err
	}
	c, ok := codecs[strings.ToLower(settings.DataRepresentation)]
	if !ok {
		return exception.NewBatchErrorf(moduleName, "unsupported data representation '%s'", settings.DataRepresentation)
	}
	s.codec = c
	logger.Debugf("Data representation initialized with format '%s'.", c.Name)
	return nil
}

// Format returns the active format name.
func (s *Service) Format() string {
	return s.codec.Name
}

// ToBytes serializes v. A nil value yields nil bytes.
func (s *Service) ToBytes(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if s.codec.Marshal == nil {
		return nil, exception.NewBatchErrorf(moduleName, "data representation is not initialized")
	}
	data, err := s.codec.Marshal(v)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to serialize "+s.codec.Name+" data", err, false, false)
	}
	return data, nil
}

// FromBytes deserializes data into out. Empty data leaves out untouched.
func (s *Service) FromBytes(data []byte, out interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if s.codec.Unmarshal == nil {
		return exception.NewBatchErrorf(moduleName, "data representation is not initialized")
	}
	if err := s.codec.Unmarshal(data, out); err != nil {
		return exception.NewBatchError(moduleName, "failed to deserialize "+s.codec.Name+" data", err, false, false)
	}
	return nil
}

var _ port.DataRepresentationService = (*Service)(nil)
