package audio

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/wavbox/internal/domain/buffer"
)

// Driver names.
const (
	DriverOto  = "oto"
	DriverNull = "null"
)

// Output is an audio transport: it streams a TransferBuffer and reports
// each drained half.
type Output interface {
	Init(sampleRate uint32) error
	StartTransfer(buf *buffer.TransferBuffer, drained func(buffer.Half)) error
	Pause() error
	Resume() error
	Stop() error
}

// NewOutput creates the output for driver, decoding its settings.
func NewOutput(driver string, settings map[string]any, codec *SoftCodec) (Output, error) {
	zlog.Debug().Msgf("creating audio output: driver=%s settings=%+v", driver, settings)

	switch driver {
	case DriverOto:
		var s OtoSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, errors.Wrapf(err, "invalid %s settings", driver)
		}
		return NewOtoTransport(s, codec), nil

	case DriverNull:
		var s ClockedSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, errors.Wrapf(err, "invalid %s settings", driver)
		}
		return NewClockedTransport(s, codec), nil

	default:
		return nil, errors.Newf("unsupported output driver: %s", driver)
	}
}

func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
