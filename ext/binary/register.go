package binary

import "github.com/joejackson1993/cometd"

// Register creates an extension and attaches it to c under Name.
func Register(c *cometd.Client, opt ...Option) (*Extension, error) {
	e, err := New(opt...)
	if err != nil {
		return nil, err
	}
	if err = c.RegisterExtension(Name, e); err != nil {
		return nil, err
	}
	return e, nil
}
