package web

// Form payloads for the POST routes. Share quantities stay strings here so a
// non-numeric submission can be rejected as its own validation error.

type loginForm struct {
	Username string `form:"username"`
	Password string `form:"password"`
}

type registerForm struct {
	Username     string `form:"username"`
	Password     string `form:"password"`
	Confirmation string `form:"confirmation"`
}

type tradeForm struct {
	Symbol string `form:"symbol"`
	Shares string `form:"shares"`
}

type quoteForm struct {
	Symbol string `form:"symbol"`
}

type changePasswordForm struct {
	Password     string `form:"password"`
	NewPassword  string `form:"newpassword"`
	Confirmation string `form:"confirmation"`
}
