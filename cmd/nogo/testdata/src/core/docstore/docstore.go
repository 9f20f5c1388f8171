package docstore

type queue struct{}

func (q *queue) processor() {}

func start() {
	q := &queue{}
	go q.processor()
}
