package vakifbank

import "github.com/mstgnz/gopos/pos"

func init() {
	pos.Register("vakifbank", NewGateway)
}
