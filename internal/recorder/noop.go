package recorder

// NoopRecorder is a no-op implementation used when no recorder is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordCheck(_ *CheckEvent) error  { return nil }
func (n *NoopRecorder) RecordAlert(_ *AlertRecord) error { return nil }
func (n *NoopRecorder) Close() error                     { return nil }
