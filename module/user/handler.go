package user

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	config "NexusProject/global/config"
	"NexusProject/logger"
	midsec "NexusProject/middleware/security"
	"NexusProject/store/pg"
	"NexusProject/tools/errs"
	jwtlib "NexusProject/tools/security"
)

var store *pg.Store

// Init wires the relational store; call once from main().
func Init(s *pg.Store) { store = s }

type registerReq struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func sessionResponse(c *gin.Context, status int, u userView) {
	token, _, err := jwtlib.Generate(jwtlib.DefaultOptions(config.GetJwtSecret()), u.ID, u.Email, u.Name)
	if err != nil {
		logger.Errorf("[user] sign token: %v", err)
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	c.JSON(status, gin.H{"user": u, "token": token})
}

func HandlerRegister(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrArgs)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Name == "" || len(req.Password) < 6 {
		c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail("email, name and a 6+ char password are required"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}

	id, err := store.CreateUser(c.Request.Context(), req.Email, req.Name, string(hash))
	if err != nil {
		if err == pg.ErrDuplicateEmail {
			c.JSON(http.StatusConflict, errs.ErrDuplicateKey.WithDetail("email already registered"))
			return
		}
		logger.Errorf("[user] register: %v", err)
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}

	sessionResponse(c, http.StatusCreated, userView{ID: id, Email: req.Email, Name: req.Name})
}

func HandlerLogin(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrArgs)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	u, err := store.FindUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		logger.Errorf("[user] login lookup: %v", err)
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, errs.ErrPasswordWrong)
		return
	}

	sessionResponse(c, http.StatusOK, userView{ID: u.ID, Email: u.Email, Name: u.Name})
}

func HandlerMe(c *gin.Context) {
	uid := midsec.UserID(c)
	u, err := store.FindUserByID(c.Request.Context(), uid)
	if err != nil {
		logger.Errorf("[user] me: %v", err)
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	if u == nil {
		c.JSON(http.StatusNotFound, errs.ErrRecordNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userView{ID: u.ID, Email: u.Email, Name: u.Name}})
}

func HandlerSearch(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusOK, gin.H{"users": []userView{}})
		return
	}
	users, err := store.SearchUsers(c.Request.Context(), q, midsec.UserID(c))
	if err != nil {
		logger.Errorf("[user] search: %v", err)
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, userView{ID: u.ID, Email: u.Email, Name: u.Name})
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}
