package services

import "parley-chat/config"

// Paging holds the page sizes shared by the conversation and message services.
type Paging struct {
	MessagePageSize int
	MaxPageSize     int
	PreviewPageSize int
	SearchLimit     int
}

func DefaultPaging() Paging {
	return Paging{MessagePageSize: 20, MaxPageSize: 100, PreviewPageSize: 20, SearchLimit: 40}
}

func PagingFromConfig(cfg *config.Config) Paging {
	p := DefaultPaging()
	if cfg.MessagePageSize > 0 {
		p.MessagePageSize = cfg.MessagePageSize
	}
	if cfg.MaxPageSize > 0 {
		p.MaxPageSize = cfg.MaxPageSize
	}
	if cfg.PreviewPageSize > 0 {
		p.PreviewPageSize = cfg.PreviewPageSize
	}
	if cfg.SearchLimit > 0 {
		p.SearchLimit = cfg.SearchLimit
	}
	return p
}

// pageSize clamps a requested size; zero or less means the default page.
func (p Paging) pageSize(requested int) int {
	if requested <= 0 {
		return p.MessagePageSize
	}
	if requested > p.MaxPageSize {
		return p.MaxPageSize
	}
	return requested
}
