package config

func watch() {
	go func() {
		println("allowed in core/config")
	}()
}
