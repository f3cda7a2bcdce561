package anoa

// Name identifies a stage. It is embedded in every label the stage records,
// so store stage names as constants rather than inline strings:
//
//	const (
//	    DecodeJSON  anoa.Name = "decode-json"
//	    RequireID   anoa.Name = "require-id"
//	    EncodeAvro  anoa.Name = "encode-avro"
//	)
type Name = string

// ErrorMapper converts an error raised by a collaborator in stage into one
// metadata entry. It is fixed when a Handler is built and must be safe for
// concurrent use when stages run in parallel.
type ErrorMapper[M any] func(err error, stage Name) M

// Stage is a lifted single-record operation: it consumes one Value and
// produces the next. Stages built by a Handler never call the wrapped
// function for absent values and never drop metadata.
type Stage[T, R, M any] func(Value[T, M]) Value[R, M]

// Then composes s with next.
func (s Stage[T, R, M]) Then(next Stage[R, R, M]) Stage[T, R, M] {
	return func(v Value[T, M]) Value[R, M] {
		return next(s(v))
	}
}

// Sink is an externally owned destination for records. Write may be called
// many times; Flush pushes buffered records downstream; Close releases the
// destination and implies Flush.
type Sink[T any] interface {
	Write(T) error
	Flush() error
	Close() error
}

// SLogger abstracts the *slog.Logger methods used by this module.
//
// The library never logs unless one is configured. *slog.Logger satisfies it.
type SLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// DiscardLogger returns an SLogger that drops every message.
func DiscardLogger() SLogger {
	return discardLogger{}
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
