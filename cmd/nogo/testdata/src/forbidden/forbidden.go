package forbidden

func refreshInBackground() {
	go func() { // want "raw 'go' statement forbidden - use errgroup, or move the worker into core/docstore"
		println("inline goroutine")
	}()
}

func commitLater() {
	go commit() // want "raw 'go' statement forbidden - use errgroup, or move the worker into core/docstore"
}

func commit() {}

type service struct{}

func (s *service) close() {}

func closeAsync() {
	s := &service{}
	go s.close() // want "raw 'go' statement forbidden - use errgroup, or move the worker into core/docstore"
}
