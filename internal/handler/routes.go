package handler

import "github.com/labstack/echo/v4"

// Routes mounts the API under g.
func Routes(g *echo.Group, auth *AuthHandler, members *MemberHandler, authn TokenAuthenticator) {
	a := g.Group("/auth")
	a.GET("/oauth/:provider", auth.Redirect)
	a.GET("/oauth/:provider/callback", auth.Callback)
	a.POST("/oauth/login", auth.Login)
	a.POST("/oauth/signup", auth.Signup)
	a.POST("/refresh", auth.Refresh)
	a.POST("/logout", auth.Logout)

	// Per-route so unmatched paths under the group still answer 404.
	requireAuth := JWTAuth(authn)
	g.GET("/auth/me", auth.Me, requireAuth)
	g.GET("/members/me", members.Get, requireAuth)
	g.PATCH("/members/me/nickname", members.ChangeNickname, requireAuth)
	g.GET("/members/me/discount", members.Discount, requireAuth)
	g.POST("/members/me/points/use", members.UsePoints, requireAuth)
	g.DELETE("/members/me", members.Delete, requireAuth)
	g.GET("/members/nickname/availability", members.NicknameAvailability, requireAuth)
}
