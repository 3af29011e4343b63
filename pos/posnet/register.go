package posnet

import "github.com/mstgnz/gopos/pos"

func init() {
	pos.Register("posnet", NewGateway)
}
