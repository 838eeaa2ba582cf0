package api

// REST 端点
const (
	pathRegister = "/auth/register"
	pathLogin    = "/auth/login"
	pathMe       = "/auth/me"

	pathSymbols = "/symbols"

	pathOrders         = "/orders"
	pathMyOrders       = "/orders/me"
	pathNewOrder       = "/orders/new"
	pathCancelOrder    = "/orders/cancel/%d"
	pathOrdersBySymbol = "/orders/symbol/%d"

	pathTrades         = "/trades"
	pathMyTrades       = "/trades/me"
	pathTradesBySymbol = "/trades/symbol/%d"
)
