package db

type SplitDatabase interface {
	Experiments() ExperimentInterface
	Assignments() AssignmentInterface
	Schema() SchemaInterface
	Close() error
}
