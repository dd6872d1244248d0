package tracking

import "shipdispatch/internal/models"

type statusText struct {
	En string
	Vi string
}

// vocabulary holds the default descriptions per tracking status key.
// Callers may override the text per event; the key set is fixed.
var vocabulary = map[string]statusText{
	models.TrackOrderPlaced:           {En: "Order placed", Vi: "Đơn hàng đã được đặt"},
	models.TrackShopConfirmed:         {En: "Shop confirmed the order", Vi: "Cửa hàng đã xác nhận đơn"},
	models.TrackPacked:                {En: "Parcel packed", Vi: "Đơn hàng đã được đóng gói"},
	models.TrackReadyToShip:           {En: "Ready to ship", Vi: "Sẵn sàng giao cho đơn vị vận chuyển"},
	models.TrackPickupRequested:       {En: "Pickup requested", Vi: "Đã yêu cầu lấy hàng"},
	models.TrackShipperAssigned:       {En: "Shipper assigned", Vi: "Đã phân công shipper"},
	models.TrackPickedUp:              {En: "Parcel picked up", Vi: "Shipper đã lấy hàng"},
	models.TrackArrivedPickupOffice:   {En: "Arrived at pickup office", Vi: "Đã đến bưu cục lấy hàng"},
	models.TrackLeftPickupOffice:      {En: "Left pickup office", Vi: "Đã rời bưu cục lấy hàng"},
	models.TrackArrivedSortingHub:     {En: "Arrived at sorting hub", Vi: "Đã đến trung tâm phân loại"},
	models.TrackLeftSortingHub:        {En: "Left sorting hub", Vi: "Đã rời trung tâm phân loại"},
	models.TrackArrivedDeliveryOffice: {En: "Arrived at delivery office", Vi: "Đã đến bưu cục giao hàng"},
	models.TrackOutForDelivery:        {En: "Out for delivery", Vi: "Đang giao hàng"},
	models.TrackDelivered:             {En: "Delivered", Vi: "Giao hàng thành công"},
	models.TrackDeliveryFailed:        {En: "Delivery failed", Vi: "Giao hàng thất bại"},
	models.TrackReturning:             {En: "Returning to sender", Vi: "Đang hoàn hàng"},
	models.TrackReturned:              {En: "Returned to sender", Vi: "Đã hoàn hàng"},
}

func KnownStatusKey(key string) bool {
	_, ok := vocabulary[key]
	return ok
}

// DefaultDescription returns the English default for a key.
func DefaultDescription(key string) string {
	return vocabulary[key].En
}

// LocalizedDescription returns the description for a language tag,
// falling back to English.
func LocalizedDescription(key, lang string) string {
	if lang == "vi" {
		if t := vocabulary[key].Vi; t != "" {
			return t
		}
	}
	return vocabulary[key].En
}
