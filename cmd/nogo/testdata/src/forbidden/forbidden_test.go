package forbidden

import "testing"

func TestConcurrentCommit(t *testing.T) {
	done := make(chan struct{})
	go func() {
		commit()
		close(done)
	}()
	<-done
}
