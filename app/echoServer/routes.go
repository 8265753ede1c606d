package echoServer

import (
	"net/http"

	"github.com/mblazhko/library-service/app/echoServer/controller/auth"
	"github.com/mblazhko/library-service/app/echoServer/controller/book"
	"github.com/mblazhko/library-service/app/echoServer/controller/borrowing"
	"github.com/mblazhko/library-service/app/echoServer/jwtx"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

type C struct {
	Auth      *auth.Controller
	Book      *book.Controller
	Borrowing *borrowing.Controller
	JWTSecret string
}

func Register(e *echo.Echo, c C) {
	// Public
	pub := e.Group("/v1")
	pub.POST("/users/register", c.Auth.Register)
	pub.POST("/users/login", c.Auth.Login)

	// Auth
	authed := e.Group("/v1")
	authed.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(c.JWTSecret),
	}))
	// user_id + role extraction from verified claims
	authed.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			uid, err := jwtx.UserIDFromContext(ctx)
			if err != nil {
				return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
			}
			role, err := jwtx.RoleFromContext(ctx)
			if err != nil {
				return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
			}
			ctx.Set("user_id", uid)
			ctx.Set("role", role)
			return next(ctx)
		}
	})

	// Books
	authed.GET("/books", c.Book.List)
	authed.GET("/books/:id", c.Book.Detail)
	// Admin endpoints
	authed.POST("/books", c.Book.Create)
	authed.POST("/books/:id/inventory", c.Book.AddInventory)

	// Borrowings
	authed.GET("/borrowings", c.Borrowing.List)
	authed.GET("/borrowings/:id", c.Borrowing.Detail)
	authed.POST("/borrowings", c.Borrowing.Create)
	authed.POST("/borrowings/:id/return", c.Borrowing.Return)

	// External scheduler hook (admin)
	authed.POST("/borrowings/due-sweep", c.Borrowing.DueSweep)
}
