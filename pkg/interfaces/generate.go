package interfaces

//go:generate mockgen -destination=mocks/mock_interfaces.go -package=mocks quietlink/pkg/interfaces StateStore,Registry,Emitter,Ledger
