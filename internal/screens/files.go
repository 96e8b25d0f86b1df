package screens

import (
	"context"

	"github.com/felixgeelhaar/bankshield/internal/api"
	"github.com/felixgeelhaar/bankshield/internal/coordinator"
)

// FileQuery selects the files shown by the file manager
type FileQuery struct {
	FileType    string
	Sensitivity string
	Search      string
	Limit       int
	Sort        string
}

// Filter converts the query into request filters
func (q FileQuery) Filter() api.FileFilter {
	return api.FileFilter{
		FileType:    q.FileType,
		Sensitivity: q.Sensitivity,
		Search:      q.Search,
		Limit:       q.Limit,
		Sort:        q.Sort,
	}
}

// FileSource lists bank files
type FileSource interface {
	ListFiles(ctx context.Context, filter api.FileFilter) (*api.Page[api.BankFile], error)
}

// Files coordinates the file manager list
type Files = coordinator.Coordinator[FileQuery, *api.Page[api.BankFile]]

// NewFiles returns the file list coordinator
func NewFiles(src FileSource, opts ...coordinator.Option) *Files {
	opts = append([]coordinator.Option{coordinator.WithFailureTitle("Could not load files")}, opts...)
	return coordinator.New("files", func(ctx context.Context, q FileQuery) (*api.Page[api.BankFile], error) {
		return src.ListFiles(ctx, q.Filter())
	}, opts...)
}
