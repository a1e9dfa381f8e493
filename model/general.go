package model

const (
	// AllPerPage signals the store to return all results, avoid pagination of any kind.
	AllPerPage = -1

	// DefaultPerPage is the page size used when a list request gives none.
	DefaultPerPage = 50
	// MaxPerPage caps the page size accepted from list requests.
	MaxPerPage = 100
)
