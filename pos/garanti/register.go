package garanti

import "github.com/mstgnz/gopos/pos"

func init() {
	pos.Register("garanti", NewGateway)
}
