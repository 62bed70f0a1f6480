package value

import "github.com/agentic-research/configtree/internal/cfgerr"

func modelErrf(format string, args ...any) error {
	return cfgerr.New(cfgerr.ModelError, "", format, args...)
}

func wrongValuef(path, format string, args ...any) error {
	return cfgerr.New(cfgerr.WrongValue, path, format, args...)
}

func userErrf(path, format string, args ...any) error {
	return cfgerr.New(cfgerr.UserError, path, format, args...)
}
