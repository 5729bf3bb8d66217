package feed

import (
	"context"
	"groupboard-backend/internal/model"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	// PreviewLikers 点赞预览显示的人数
	PreviewLikers = 3
	// ModalLikers 点赞列表的人数上限，受 in 查询限制
	ModalLikers = model.MaxInValues
)

// LikesPreview 帖子的前 3 位点赞用户，按点赞先后排序
func (s *Synchronizer) LikesPreview(ctx context.Context, postID string) ([]Liker, error) {
	return s.loadLikers(ctx, postID, false)
}

// LikesModal 帖子的前 10 位点赞用户，按查询返回顺序排列
func (s *Synchronizer) LikesModal(ctx context.Context, postID string) ([]Liker, error) {
	return s.loadLikers(ctx, postID, true)
}

func (s *Synchronizer) loadLikers(ctx context.Context, postID string, modal bool) ([]Liker, error) {
	var likers []Liker
	err := s.attempt("load_likers", "", func() error {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		cache := s.state.LikesPreview
		if modal {
			cache = s.state.LikesModal
		}
		if cached, ok := cache[postID]; ok {
			s.mu.Unlock()
			likers = append([]Liker{}, cached...)
			return nil
		}
		post, ok := s.state.FindPost(postID)
		epoch := s.state.PreviewEpoch[postID]
		s.mu.Unlock()
		if !ok {
			return notFound("帖子不存在")
		}

		limit := PreviewLikers
		if modal {
			limit = ModalLikers
		}
		ids := post.Likes
		if len(ids) > limit {
			ids = ids[:limit]
		}

		loaded, err := s.fetchLikers(ctx, ids)
		if err != nil {
			return err
		}
		if !modal {
			loaded = orderByIDs(loaded, ids)
		}
		likers = loaded

		s.mu.Lock()
		defer s.mu.Unlock()
		// 加载期间预览被清除时不写回缓存
		if !modal && s.state.PreviewEpoch[postID] != epoch {
			return nil
		}
		s.applyLocked(LikersLoaded{PostID: postID, Modal: modal, Likers: loaded})
		return nil
	})
	return likers, err
}

// fetchLikers 并发读取用户资料和成员记录，资料优先，按 ID 去重，找不到的 ID 直接忽略
func (s *Synchronizer) fetchLikers(ctx context.Context, ids []string) ([]Liker, error) {
	if len(ids) == 0 {
		return []Liker{}, nil
	}

	var profiles []model.UserProfile
	var members []model.Member
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profiles, err = s.community.LikerProfiles(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		members, err = s.community.LikerMembers(gctx, s.groupID, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeLikers(profiles, members), nil
}

func mergeLikers(profiles []model.UserProfile, members []model.Member) []Liker {
	seen := make(map[string]bool)
	likers := make([]Liker, 0, len(profiles)+len(members))
	for _, p := range profiles {
		if p.ID == "" || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		likers = append(likers, Liker{ID: p.ID, Name: profileName(p), Email: p.Email, Photo: p.PhotoURL})
	}
	for _, m := range members {
		if m.UserID == "" || seen[m.UserID] {
			continue
		}
		seen[m.UserID] = true
		name := strings.TrimSpace(m.UserName)
		if name == "" {
			name = nameFromEmail(m.UserEmail)
		}
		if name == "" {
			name = FallbackAuthorName
		}
		likers = append(likers, Liker{ID: m.UserID, Name: name, Email: m.UserEmail})
	}
	return likers
}

func profileName(p model.UserProfile) string {
	return ResolveAuthorName(model.Identity{
		UserID:      p.ID,
		Email:       p.Email,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		DisplayName: p.DisplayName,
	}, nil, nil)
}

// orderByIDs 按点赞顺序重新排列，未加载到的 ID 不出现在结果中
func orderByIDs(likers []Liker, ids []string) []Liker {
	byID := make(map[string]Liker, len(likers))
	for _, l := range likers {
		byID[l.ID] = l
	}
	out := make([]Liker, 0, len(likers))
	for _, id := range ids {
		if l, ok := byID[id]; ok {
			out = append(out, l)
		}
	}
	return out
}
