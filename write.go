package anoa

import "fmt"

// Write lifts an externally owned sink. Present records are written to sink
// and pass through unchanged; a failing write drops the record with the mapped
// error appended. Sink errors without a kind are wrapped with ErrWrite.
// Write neither flushes nor closes the sink: the owner calls Flush and Close
// once the sequence is drained.
//
// Example:
//
//	out := sink.Lines(os.Stdout)
//	defer out.Close()
//	write := anoa.Write(h, "write-stdout", out)
//	collected := anoa.Collect(anoa.Through(encoded, write))
func Write[T, M any](h *Handler[M], stage Name, sink Sink[T]) Stage[T, T, M] {
	if sink == nil {
		panic("sink can't be nil")
	}
	return TryEffect(h, stage, func(v T) error {
		err := sink.Write(v)
		if err != nil && KindOf(err) == KindUnknown {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
		return err
	})
}
