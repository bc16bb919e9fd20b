package oops

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

var SampleErrorValue = errors.New("some error occurred that you should handle")

type SampleErrorType struct {
	Message string
}

func (s SampleErrorType) Error() string {
	return s.Message
}

func init() {
	zerolog.ErrorStackMarshaler = ZerologStackMarshaler
}

func TestNew(t *testing.T) {
	t.Run("errors.Is", func(t *testing.T) {
		err := New(SampleErrorValue, "test error")
		assert.ErrorIs(t, err, SampleErrorValue)
	})
	t.Run("errors.As", func(t *testing.T) {
		err := New(SampleErrorType{Message: "some fancy error type has occurred"}, "test error")
		var sErr SampleErrorType
		assert.True(t, errors.As(err, &sErr), "error did not appear to wrap the sample error type")
	})
	t.Run("message", func(t *testing.T) {
		assert.Equal(t, "reply 12: some error occurred that you should handle", New(SampleErrorValue, "reply %d", 12).Error())
		assert.Equal(t, "nothing underneath", New(nil, "nothing underneath").Error())
	})
	t.Run("stack starts at the caller", func(t *testing.T) {
		err := New(nil, "here").(*Error)
		if assert.NotEmpty(t, err.Stack) {
			assert.True(t, strings.HasSuffix(err.Stack[0].Function, "TestNew.func4"), "top frame was %s", err.Stack[0].Function)
		}
	})
}
