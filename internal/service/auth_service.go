package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"gatepass/config"
	"gatepass/internal/dto"
	"gatepass/internal/model"
	"gatepass/internal/repository"
	pkgerrors "gatepass/pkg/errors"
	"gatepass/pkg/jwt"
)

var (
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrOperatorNotFound   = errors.New("工作人员不存在")
	ErrUsernameExists     = errors.New("用户名已存在")
	ErrInvalidRole        = errors.New("角色无效")
)

// TokenBlacklist 登出时吊销 Token；由 pkg/redis.Client 实现
type TokenBlacklist interface {
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
}

// AuthService 工作人员认证业务接口
type AuthService interface {
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error)
	// Logout 吊销 Token；黑名单不可用时仅记录日志
	Logout(ctx context.Context, jti string, expiresAt time.Time) error
	GetCurrentOperator(ctx context.Context, operatorID string) (*dto.OperatorResponse, error)
	CreateOperator(ctx context.Context, req *dto.CreateOperatorRequest, callerID string) (*dto.OperatorResponse, error)
	// EnsureBootstrapAdmin 不存在任何工作人员时创建初始管理员
	EnsureBootstrapAdmin(ctx context.Context) error
}

type authService struct {
	cfg       *config.Config
	repo      *repository.Repository
	jwtMgr    *jwt.Manager
	blacklist TokenBlacklist
	logger    *zap.Logger
}

// NewAuthService 创建 AuthService 实例，blacklist 可为 nil
func NewAuthService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	blacklist TokenBlacklist,
	logger *zap.Logger,
) AuthService {
	return &authService{
		cfg:       cfg,
		repo:      repo,
		jwtMgr:    jwtMgr,
		blacklist: blacklist,
		logger:    logger,
	}
}

// ────────────────────── Login ──────────────────────

func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error) {
	// 1. 查询工作人员
	op, err := s.repo.Operator.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("查询工作人员失败", zap.Error(err))
		return nil, err
	}

	// 2. 验证密码 (bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// 3. 签发 Access Token
	accessToken, err := s.jwtMgr.GenerateAccessToken(op.OperatorID, op.Username, op.Role)
	if err != nil {
		s.logger.Error("生成 AccessToken 失败", zap.Error(err))
		return nil, err
	}

	s.logger.Info("工作人员登录", zap.String("operator_id", op.OperatorID), zap.String("role", op.Role))

	return &dto.TokenResponse{
		AccessToken: accessToken,
		ExpiresIn:   int(s.jwtMgr.AccessTokenTTL().Seconds()),
		Operator:    dto.ToOperatorResponse(op),
	}, nil
}

// ────────────────────── Logout ──────────────────────

func (s *authService) Logout(ctx context.Context, jti string, expiresAt time.Time) error {
	if s.blacklist == nil || jti == "" {
		s.logger.Warn("Token 黑名单不可用，登出仅在客户端生效", zap.String("jti", jti))
		return nil
	}
	if err := s.blacklist.BlacklistToken(ctx, jti, time.Until(expiresAt)); err != nil {
		s.logger.Warn("写入 Token 黑名单失败", zap.String("jti", jti), zap.Error(err))
	}
	return nil
}

// ────────────────────── GetCurrentOperator ──────────────────────

func (s *authService) GetCurrentOperator(ctx context.Context, operatorID string) (*dto.OperatorResponse, error) {
	op, err := s.repo.Operator.GetByID(ctx, operatorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOperatorNotFound
		}
		s.logger.Error("查询工作人员失败", zap.String("operator_id", operatorID), zap.Error(err))
		return nil, err
	}
	resp := dto.ToOperatorResponse(op)
	return &resp, nil
}

// ────────────────────── CreateOperator ──────────────────────

func (s *authService) CreateOperator(ctx context.Context, req *dto.CreateOperatorRequest, callerID string) (*dto.OperatorResponse, error) {
	if !validRole(req.Role) {
		return nil, ErrInvalidRole
	}
	username := strings.TrimSpace(req.Username)

	if _, err := s.repo.Operator.GetByUsername(ctx, username); err == nil {
		return nil, ErrUsernameExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	op, err := s.newOperator(username, req.DisplayName, req.Password, req.Role, callerID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Operator.Create(ctx, op); err != nil {
		if errors.Is(err, pkgerrors.ErrDuplicateKey) {
			return nil, ErrUsernameExists
		}
		s.logger.Error("创建工作人员失败", zap.Error(err))
		return nil, err
	}

	s.logger.Info("工作人员已创建",
		zap.String("operator_id", op.OperatorID),
		zap.String("role", op.Role),
		zap.String("created_by", callerID))
	resp := dto.ToOperatorResponse(op)
	return &resp, nil
}

// ────────────────────── EnsureBootstrapAdmin ──────────────────────

func (s *authService) EnsureBootstrapAdmin(ctx context.Context) error {
	n, err := s.repo.Operator.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	username := s.cfg.Auth.BootstrapAdmin
	password := s.cfg.Auth.BootstrapPassword
	if username == "" || password == "" {
		s.logger.Warn("尚无工作人员账号，且未配置 auth.bootstrap_password，跳过初始管理员创建")
		return nil
	}

	op, err := s.newOperator(username, "Administrator", password, model.RoleAdmin, "")
	if err != nil {
		return err
	}
	if err := s.repo.Operator.Create(ctx, op); err != nil {
		// 多实例同时启动时可能已被其他实例创建
		if errors.Is(err, pkgerrors.ErrDuplicateKey) {
			return nil
		}
		return err
	}
	s.logger.Info("已创建初始管理员", zap.String("username", username))
	return nil
}

// ── 内部辅助方法 ──

func (s *authService) newOperator(username, displayName, password, role, callerID string) (*model.Operator, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return nil, err
	}
	op := &model.Operator{
		OperatorID:   uuid.NewString(),
		Username:     username,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		Role:         role,
	}
	if callerID != "" {
		op.CreatedBy = &callerID
	}
	return op, nil
}

func validRole(role string) bool {
	switch role {
	case model.RoleAdmin, model.RoleRegistrar, model.RoleScanner:
		return true
	}
	return false
}
