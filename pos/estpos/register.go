package estpos

import "github.com/mstgnz/gopos/pos"

func init() {
	pos.Register("estpos", NewGateway)
}
