package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials неизвестный оператор или неверный пароль
var ErrBadCredentials = errors.New("неверное имя оператора или пароль")

// HashPassword возвращает bcrypt-хэш пароля с DefaultCost
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckPassword сравнивает bcrypt-хэш с паролем
func CheckPassword(hash string, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Operator учетная запись оператора
type Operator struct {
	Name         string
	PasswordHash string
	Role         string
}

// Operators проверяет пароли операторов из конфигурации
type Operators struct {
	byName map[string]Operator
}

// NewOperators проверяет роли и уникальность имен
func NewOperators(ops []Operator) (*Operators, error) {
	byName := make(map[string]Operator, len(ops))
	for _, op := range ops {
		if op.Name == "" {
			return nil, errors.New("оператор без имени")
		}
		if op.Role != RoleAdmin && op.Role != RoleViewer {
			return nil, fmt.Errorf("оператор %s: неизвестная роль %q", op.Name, op.Role)
		}
		if _, dup := byName[op.Name]; dup {
			return nil, fmt.Errorf("оператор %s объявлен дважды", op.Name)
		}
		byName[op.Name] = op
	}
	return &Operators{byName: byName}, nil
}

// Len количество операторов
func (o *Operators) Len() int {
	if o == nil {
		return 0
	}
	return len(o.byName)
}

// Authenticate возвращает оператора, если пароль совпал с хэшем
func (o *Operators) Authenticate(name, password string) (Operator, error) {
	if o == nil {
		return Operator{}, ErrBadCredentials
	}
	op, ok := o.byName[name]
	if !ok || !CheckPassword(op.PasswordHash, password) {
		return Operator{}, ErrBadCredentials
	}
	return op, nil
}
