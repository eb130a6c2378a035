package handler

import (
	"errors"
	"net/http"
	"strings"

	"chatty/internal/app/identity"
	"chatty/internal/app/protocol"
	"chatty/internal/pkg/errs"
	"chatty/internal/pkg/logx"
	"chatty/internal/pkg/randx"
	"chatty/internal/pkg/req"
	"chatty/internal/pkg/resp"
)

type RegisterInput struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
}

type RegisterOutput struct {
	Login    string `json:"login"`
	Nickname string `json:"nickname"`
}

// HandleRegister creates an account the same way the /reg chat command does.
// A random nickname is chosen when none is given.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input RegisterInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.Nickname == "" {
			nickname, err := randx.Nickname()
			if err != nil {
				resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
				return
			}
			input.Nickname = nickname
		}

		if !protocol.IsToken(input.Login) || !protocol.IsToken(input.Nickname) || input.Password == "" || strings.ContainsRune(input.Password, ' ') {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		err := deps.Server.RegisterAccount(r.Context(), input.Login, input.Password, input.Nickname)
		switch {
		case err == nil:
			resp.RespondCreated(w, r, RegisterOutput{Login: input.Login, Nickname: input.Nickname})

		case errors.Is(err, identity.ErrLoginTaken), errors.Is(err, identity.ErrNicknameTaken):
			logx.Warn("registration conflict", "login", input.Login, "nickname", input.Nickname)
			resp.RespondError(w, r, errs.NewError(errs.ErrRegistrationRefused))

		default:
			logx.Error(err, "failed to register account")
			resp.RespondError(w, r, errs.NewError(errs.ErrBackendUnavailable))
		}
	}
}
