// Package validation содержит функции валидации входных данных.
package validation

import "regexp"

var (
	emailRe  = regexp.MustCompile(`^[a-z0-9][\w.\-]*@[a-z0-9]+(\.[a-z]{2,5}){1,2}$`)
	mobileRe = regexp.MustCompile(`^1[3-9]\d{9}$`)
)

// IsValidEmail проверяет корректность адреса электронной почты.
func IsValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

// IsValidMobile проверяет корректность номера мобильного телефона.
func IsValidMobile(mobile string) bool {
	return mobileRe.MatchString(mobile)
}

// IsValidPassword проверяет, что длина пароля находится в допустимых пределах.
func IsValidPassword(password string) bool {
	return len(password) >= 6 && len(password) <= 18
}
