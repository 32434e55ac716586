package driver

// Create creates a Driver for the given PLC configuration. The connection is
// not established until Connect is called on the returned driver.
func Create(cfg Config) (Driver, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return NewLogixAdapter(cfg)
}
