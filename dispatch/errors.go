package dispatch

// BusyError reports that Flash was called while another job was
// already in flight.
type BusyError struct{}

func (e *BusyError) Error() string {
	return "dispatch: another flash job is already in progress"
}

// UserAbortedError reports that the destructive-flash confirmation
// prompt was declined.
type UserAbortedError struct{}

func (e *UserAbortedError) Error() string {
	return "dispatch: user declined to confirm the destructive flash"
}
