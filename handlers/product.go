package handlers

import (
	"context"
	"io"
	"math"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-shop/analytics"
	"github.com/saiset-co/sai-shop/cache"
	"github.com/saiset-co/sai-shop/middleware"
	"github.com/saiset-co/sai-shop/repository"
	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

type reviewsResult struct {
	Reviews      []types.Review `json:"reviews"`
	Ratings      int            `json:"ratings"`
	NumOfReviews int            `json:"numOfReviews"`
}

type newReviewRequest struct {
	Comment string `json:"comment"`
	Rating  int    `json:"rating"`
}

func (h *Handlers) registerProductRoutes(router types.HTTPRouter) {
	group := router.Group("/api/v1/product")

	group.POST("/new", h.newProduct).WithMiddlewares(middleware.NameAdmin)
	group.GET("/latest", h.latestProducts)
	group.GET("/all", h.searchProducts)
	group.GET("/categories", h.categories)
	group.GET("/admin-products", h.adminProducts).WithMiddlewares(middleware.NameAdmin)
	group.GET("/reviews/{id}", h.productReviews)
	group.POST("/review/new/{id}", h.newReview)
	group.GET("/{id}", h.getProduct)
	group.PUT("/{id}", h.updateProduct).WithMiddlewares(middleware.NameAdmin)
	group.DELETE("/{id}", h.deleteProduct).WithMiddlewares(middleware.NameAdmin)
}

func (h *Handlers) latestProducts(ctx *fasthttp.RequestCtx) {
	products, err := cache.Remember(ctx, h.cache, cache.KeyLatestProducts, h.shop.ProductTTL,
		func(ctx context.Context) ([]types.Product, error) {
			return h.repos.Products.Latest(ctx, 5)
		})
	if err != nil {
		h.fail(ctx, err)
		return
	}

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"products": products})
}

func (h *Handlers) categories(ctx *fasthttp.RequestCtx) {
	categories, err := cache.Remember(ctx, h.cache, cache.KeyCategories, h.shop.ProductTTL,
		h.repos.Products.Categories)
	if err != nil {
		h.fail(ctx, err)
		return
	}

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"categories": categories})
}

func (h *Handlers) adminProducts(ctx *fasthttp.RequestCtx) {
	products, err := cache.Remember(ctx, h.cache, cache.KeyAllProducts, h.shop.ProductTTL,
		h.repos.Products.All)
	if err != nil {
		h.fail(ctx, err)
		return
	}

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"products": products})
}

func (h *Handlers) searchProducts(ctx *fasthttp.RequestCtx) {
	args := ctx.QueryArgs()
	search := string(args.Peek("search"))
	sort := string(args.Peek("sort"))
	category := strings.ToLower(string(args.Peek("category")))
	priceArg := string(args.Peek("price"))
	page := utils.ParseInt(string(args.Peek("page")), 1)
	if page < 1 {
		page = 1
	}

	price := 0.0
	if priceArg != "" {
		parsed, valid := utils.ParseFloat(priceArg)
		if !valid || parsed < 0 {
			h.fail(ctx, types.Errorf(types.ErrInvalidParameter, "Invalid price"))
			return
		}
		price = parsed
	}

	products, total, err := h.repos.Products.Search(ctx, repository.SearchParams{
		Search:   search,
		Sort:     sort,
		Category: category,
		Price:    price,
		Page:     page,
		PerPage:  h.shop.ProductsPerPage,
	})
	if err != nil {
		h.fail(ctx, err)
		return
	}

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{
		"products":  products,
		"totalPage": int(math.Ceil(float64(total) / float64(h.shop.ProductsPerPage))),
	})
}

func (h *Handlers) getProduct(ctx *fasthttp.RequestCtx) {
	id := utils.PathParam(ctx, "id")

	product, err := cache.Remember(ctx, h.cache, cache.ProductKey(id), h.shop.ProductTTL,
		func(ctx context.Context) (types.Product, error) {
			return h.repos.Products.FindByID(ctx, id)
		})
	if err != nil {
		h.fail(ctx, notFound(err, "Product not found"))
		return
	}

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"product": product})
}

func (h *Handlers) newProduct(ctx *fasthttp.RequestCtx) {
	form, err := ctx.MultipartForm()
	if err != nil {
		h.fail(ctx, types.Errorf(types.ErrValidation, "Please add all fields"))
		return
	}

	files := form.File["photos"]
	if len(files) == 0 {
		h.fail(ctx, types.Errorf(types.ErrValidation, "Product photo is required"))
		return
	}
	if len(files) > h.shop.MaxPhotos {
		h.fail(ctx, types.Errorf(types.ErrValidation, "You can only upload %d Photos", h.shop.MaxPhotos))
		return
	}

	name := formValue(form, "name")
	category := strings.ToLower(formValue(form, "category"))
	description := formValue(form, "description")
	price, priceOK := utils.ParseFloat(formValue(form, "price"))
	stock, stockErr := strconv.Atoi(formValue(form, "stock"))

	if name == "" || category == "" || description == "" || !priceOK || stockErr != nil {
		h.fail(ctx, types.Errorf(types.ErrValidation, "Please add all fields"))
		return
	}

	product := types.Product{
		Name:        name,
		Price:       price,
		Stock:       stock,
		Category:    category,
		Description: description,
	}
	if err := utils.Validate(product); err != nil {
		h.fail(ctx, err)
		return
	}

	photos, err := h.uploadPhotos(ctx, files)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	product.Photos = photos

	created, err := h.repos.Products.Create(ctx, product)
	if err != nil {
		h.discardPhotos(ctx, photos)
		h.fail(ctx, err)
		return
	}

	h.invalidate(ctx, cache.InvalidationRequest{Product: true, Admin: true}.ProductID(created.ID))

	ok(ctx, fasthttp.StatusCreated, map[string]interface{}{
		"message": "Product created successfully",
		"product": created,
	})
}

func (h *Handlers) updateProduct(ctx *fasthttp.RequestCtx) {
	id := utils.PathParam(ctx, "id")

	product, err := h.repos.Products.FindByID(ctx, id)
	if err != nil {
		h.fail(ctx, notFound(err, "Product not found"))
		return
	}

	form, err := ctx.MultipartForm()
	if err != nil && err != fasthttp.ErrNoMultipartForm {
		h.fail(ctx, types.Errorf(types.ErrValidation, "Invalid form data"))
		return
	}

	var oldPhotos []types.Photo
	if form != nil {
		if value := formValue(form, "name"); value != "" {
			product.Name = value
		}
		if value := formValue(form, "category"); value != "" {
			product.Category = strings.ToLower(value)
		}
		if value := formValue(form, "description"); value != "" {
			product.Description = value
		}
		if value := formValue(form, "price"); value != "" {
			price, valid := utils.ParseFloat(value)
			if !valid {
				h.fail(ctx, types.Errorf(types.ErrValidation, "Invalid price"))
				return
			}
			product.Price = price
		}
		if value := formValue(form, "stock"); value != "" {
			stock, err := strconv.Atoi(value)
			if err != nil {
				h.fail(ctx, types.Errorf(types.ErrValidation, "Invalid stock"))
				return
			}
			product.Stock = stock
		}

		if files := form.File["photos"]; len(files) > 0 {
			if len(files) > h.shop.MaxPhotos {
				h.fail(ctx, types.Errorf(types.ErrValidation, "You can only upload %d Photos", h.shop.MaxPhotos))
				return
			}

			photos, err := h.uploadPhotos(ctx, files)
			if err != nil {
				h.fail(ctx, err)
				return
			}
			oldPhotos = product.Photos
			product.Photos = photos
		}
	}

	if err := utils.Validate(product); err != nil {
		h.fail(ctx, err)
		return
	}

	if err := h.repos.Products.Save(ctx, product); err != nil {
		h.fail(ctx, notFound(err, "Product not found"))
		return
	}

	h.discardPhotos(ctx, oldPhotos)
	h.invalidate(ctx, cache.InvalidationRequest{Product: true, Admin: true}.ProductID(id))

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{
		"message": "Product updated successfully",
		"product": product,
	})
}

func (h *Handlers) deleteProduct(ctx *fasthttp.RequestCtx) {
	id := utils.PathParam(ctx, "id")

	product, err := h.repos.Products.FindByID(ctx, id)
	if err != nil {
		h.fail(ctx, notFound(err, "Product not found"))
		return
	}

	if err := h.repos.Products.DeleteOne(ctx, id); err != nil {
		h.fail(ctx, notFound(err, "Product not found"))
		return
	}

	h.discardPhotos(ctx, product.Photos)
	h.invalidate(ctx, cache.InvalidationRequest{Product: true, Admin: true}.ProductID(id))

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{"message": "Product deleted successfully"})
}

func (h *Handlers) productReviews(ctx *fasthttp.RequestCtx) {
	id := utils.PathParam(ctx, "id")

	result, err := cache.Remember(ctx, h.cache, cache.ReviewsKey(id), h.shop.ProductTTL,
		func(ctx context.Context) (reviewsResult, error) {
			reviews, err := h.repos.Reviews.ByProduct(ctx, id)
			if err != nil {
				return reviewsResult{}, err
			}

			summary := analytics.AverageRating(reviews)
			return reviewsResult{
				Reviews:      reviews,
				Ratings:      summary.Ratings,
				NumOfReviews: summary.NumOfReviews,
			}, nil
		})
	if err != nil {
		h.fail(ctx, err)
		return
	}

	ok(ctx, fasthttp.StatusOK, map[string]interface{}{
		"reviews":      result.Reviews,
		"ratings":      result.Ratings,
		"numOfReviews": result.NumOfReviews,
	})
}

// newReview stores or replaces the caller's review and refreshes the product rating.
func (h *Handlers) newReview(ctx *fasthttp.RequestCtx) {
	productID := utils.PathParam(ctx, "id")
	userID := string(ctx.QueryArgs().Peek("id"))
	if userID == "" {
		h.fail(ctx, types.Errorf(types.ErrUnauthorized, "Login Required"))
		return
	}

	var req newReviewRequest
	if err := decode(ctx, &req); err != nil {
		h.fail(ctx, err)
		return
	}

	if _, err := h.repos.Users.FindByID(ctx, userID); err != nil {
		h.fail(ctx, notFound(err, "Invalid Id"))
		return
	}

	product, err := h.repos.Products.FindByID(ctx, productID)
	if err != nil {
		h.fail(ctx, notFound(err, "Product not found"))
		return
	}

	review, exists, err := h.repos.Reviews.ByUserAndProduct(ctx, userID, productID)
	if err != nil {
		h.fail(ctx, err)
		return
	}

	review.Comment = req.Comment
	review.Rating = req.Rating
	review.User = userID
	review.Product = productID
	if err := utils.Validate(review); err != nil {
		h.fail(ctx, err)
		return
	}

	if exists {
		err = h.repos.Reviews.Save(ctx, review)
	} else {
		_, err = h.repos.Reviews.Create(ctx, review)
	}
	if err != nil {
		h.fail(ctx, err)
		return
	}

	reviews, err := h.repos.Reviews.ByProduct(ctx, productID)
	if err != nil {
		h.fail(ctx, err)
		return
	}

	summary := analytics.AverageRating(reviews)
	if err := h.repos.Products.Update(ctx, product.ID, map[string]interface{}{
		"$set": map[string]interface{}{
			"ratings":      summary.Ratings,
			"numOfReviews": summary.NumOfReviews,
		},
	}); err != nil {
		h.fail(ctx, err)
		return
	}

	h.invalidate(ctx, cache.InvalidationRequest{Product: true, Review: true, Admin: true}.ProductID(productID))

	status := fasthttp.StatusCreated
	message := "Review Added"
	if exists {
		status = fasthttp.StatusOK
		message = "Review Updated"
	}
	ok(ctx, status, map[string]interface{}{"message": message})
}

// uploadPhotos sends every file to the media store concurrently. On failure the
// photos that did upload are removed again.
func (h *Handlers) uploadPhotos(ctx context.Context, files []*multipart.FileHeader) ([]types.Photo, error) {
	photos := make([]types.Photo, len(files))
	uploaded := make([]bool, len(files))

	g, gCtx := errgroup.WithContext(ctx)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			data, err := readFile(file)
			if err != nil {
				return types.Errorf(types.ErrValidation, "Unreadable photo %s", file.Filename)
			}

			photo, err := h.media.Upload(gCtx, file.Filename, data)
			if err != nil {
				return err
			}
			photos[i] = photo
			uploaded[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		partial := make([]types.Photo, 0, len(photos))
		for i, done := range uploaded {
			if done {
				partial = append(partial, photos[i])
			}
		}
		h.discardPhotos(ctx, partial)
		return nil, err
	}

	return photos, nil
}

func (h *Handlers) discardPhotos(ctx context.Context, photos []types.Photo) {
	if len(photos) == 0 {
		return
	}

	ids := make([]string, 0, len(photos))
	for _, photo := range photos {
		ids = append(ids, photo.PublicID)
	}

	if err := h.media.Delete(ctx, ids...); err != nil {
		h.logger.Warn("Failed to delete photos", zap.Strings("public_ids", ids), zap.Error(err))
	}
}

func readFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

func formValue(form *multipart.Form, name string) string {
	if values := form.Value[name]; len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}
