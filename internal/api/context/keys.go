package context

type Key string

const (
	Claims      Key = "claims"
	Environment Key = "environment"
	Params      Key = "params"
)
