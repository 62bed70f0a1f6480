package collection

import "github.com/agentic-research/configtree/internal/cfgerr"

func modelErrf(format string, args ...any) error {
	return cfgerr.New(cfgerr.ModelError, "", format, args...)
}

func wrongValuef(path, format string, args ...any) error {
	return cfgerr.New(cfgerr.WrongValue, path, format, args...)
}

func unknownIDf(path, format string, args ...any) error {
	return cfgerr.New(cfgerr.UnknownId, path, format, args...)
}
