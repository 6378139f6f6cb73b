package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/annel0/shopzones/internal/auth"
)

const claimsKey = "operator_claims"

// corsMiddleware разрешает запросы панели администратора с любого origin
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// jwtMiddleware проверяет токен оператора в заголовке Authorization.
// Без настроенного секрета проверка отключена.
func (s *Server) jwtMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.tokens == nil {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Отсутствует токен авторизации",
			})
			return
		}

		// Формат "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Неверный формат токена",
			})
			return
		}

		claims, err := s.tokens.Validate(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Недействительный токен",
			})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// adminMiddleware пропускает только операторов с ролью admin
func (s *Server) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.tokens == nil {
			c.Next()
			return
		}

		v, exists := c.Get(claimsKey)
		claims, ok := v.(*auth.Claims)
		if !exists || !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, GenericResponse{
				Success: false,
				Message: "Отсутствует информация об операторе",
			})
			return
		}
		if !claims.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, GenericResponse{
				Success: false,
				Message: "Недостаточно прав доступа",
			})
			return
		}
		c.Next()
	}
}

// LoginRequest запрос на вход оператора
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse ответ на вход
type LoginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	Message   string `json:"message"`
	Role      string `json:"role,omitempty"`
	ExpiresIn int64  `json:"expires_in,omitempty"`
}

// handleLogin выдает токен оператору по имени и паролю
func (s *Server) handleLogin(c *gin.Context) {
	if s.tokens == nil || s.ops.Len() == 0 {
		c.JSON(http.StatusNotFound, LoginResponse{Message: "Вход операторов не настроен"})
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{Message: "Неверный формат запроса"})
		return
	}

	op, err := s.ops.Authenticate(req.Username, req.Password)
	if err != nil {
		s.logger.Warn("🔐 Неудачный вход оператора %q с %s", req.Username, c.ClientIP())
		c.JSON(http.StatusUnauthorized, LoginResponse{Message: "Неверное имя оператора или пароль"})
		return
	}

	token, err := s.tokens.Issue(op.Name, op.Role, s.ttl)
	if err != nil {
		c.JSON(http.StatusInternalServerError, LoginResponse{Message: "Ошибка генерации токена"})
		return
	}

	s.logger.Info("🔐 Оператор %s вошел (%s)", op.Name, op.Role)
	c.JSON(http.StatusOK, LoginResponse{
		Success:   true,
		Token:     token,
		Message:   "Успешная авторизация",
		Role:      op.Role,
		ExpiresIn: int64(s.ttl.Seconds()),
	})
}
